package core

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Operation represents a backend storage operation, one of Create, Read, Update, Delete, List
type Operation string

// all supported storage operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// OperationForMethod maps an HTTP method to the storage operation it
// requests. The id flag distinguishes a single read from a list.
func OperationForMethod(method string, withID bool) (Operation, bool) {
	switch method {
	case http.MethodGet:
		if withID {
			return OperationRead, true
		}
		return OperationList, true
	case http.MethodPost:
		return OperationCreate, true
	case http.MethodPut:
		return OperationUpdate, true
	case http.MethodDelete:
		return OperationDelete, true
	}
	return "", false
}

// IsMutation returns true for operations that require a validated body.
func (o Operation) IsMutation() bool {
	return o == OperationCreate || o == OperationUpdate
}

// Role is a staff role. The enumeration is closed: permission matrices
// declare an explicit entry for every role, and absence is denial.
type Role string

// all declared roles
const (
	RoleJunior Role = "junior"
	RoleMedior Role = "medior"
	RoleSenior Role = "senior"
	RoleAdmin  Role = "admin"
)

// Roles lists every declared role. Registry construction uses this to
// enforce matrix completeness at startup.
func Roles() []Role {
	return []Role{RoleJunior, RoleMedior, RoleSenior, RoleAdmin}
}

// UnmarshalJSON is a custom JSON unmarshaller
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Role(s)
	switch *r {
	case RoleJunior, RoleMedior, RoleSenior, RoleAdmin:
		return nil
	default:
		return fmt.Errorf("%s is not a valid Role", s)
	}
}

// Notifier is an interface to receive change notifications for
// successful mutations.
type Notifier interface {
	Notify(entityKey string, operation Operation, payload []byte)
}
