package test

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/client"
)

func TestIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("set RUN_INTEGRATION_TESTS to run tests against containers")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) TestCatalogRoundTrip() {
	cl := s.Client()

	genre := map[string]interface{}{}
	_, err := cl.Post("/genre", map[string]string{"name": "Crime"}, &genre)
	s.Require().NoError(err)
	s.NotEmpty(genre["genre_id"])

	language := map[string]interface{}{}
	_, err = cl.Post("/language", map[string]string{"code": "en", "language": "English"}, &language)
	s.Require().NoError(err)

	movie := map[string]interface{}{}
	_, err = cl.Post("/movie", map[string]interface{}{
		"title":       "Heat",
		"genre_id":    genre["genre_id"],
		"language_id": language["language_id"],
	}, &movie)
	s.Require().NoError(err)

	read := map[string]interface{}{}
	_, err = cl.Get("/movie/"+movie["movie_id"].(string), &read)
	s.Require().NoError(err)
	s.Equal("Heat", read["title"])
	s.Equal(genre["genre_id"], read["genre_id"])
}

func (s *IntegrationTestSuite) TestDuplicateUniqueField() {
	cl := s.Client()

	_, err := cl.Post("/subscription", map[string]interface{}{"name": "Premium", "price_cents": 1499}, nil)
	s.Require().NoError(err)

	status, apiErr, err := cl.Error(http.MethodPost, "/subscription",
		map[string]interface{}{"name": "Premium", "price_cents": 999})
	s.Require().NoError(err)
	s.Equal(http.StatusUnprocessableEntity, status)
	s.Equal("duplicate value for a unique field", apiErr.Message)
}

func (s *IntegrationTestSuite) TestDanglingReference() {
	cl := s.Client()

	status, apiErr, err := cl.Error(http.MethodPost, "/movie", map[string]interface{}{
		"title":       "Ghost",
		"genre_id":    "77777777-7777-7777-7777-777777777777",
		"language_id": "88888888-8888-8888-8888-888888888888",
	})
	s.Require().NoError(err)
	s.Equal(http.StatusUnprocessableEntity, status)
	s.Equal("related record not found", apiErr.Message)
}

func (s *IntegrationTestSuite) TestDeleteRestrictedByReference() {
	cl := s.Client()

	genre := map[string]interface{}{}
	_, err := cl.Post("/genre", map[string]string{"name": "Documentary"}, &genre)
	s.Require().NoError(err)
	language := map[string]interface{}{}
	_, err = cl.Post("/language", map[string]string{"code": "fr", "language": "French"}, &language)
	s.Require().NoError(err)
	_, err = cl.Post("/movie", map[string]interface{}{
		"title":       "Faces Places",
		"genre_id":    genre["genre_id"],
		"language_id": language["language_id"],
	}, nil)
	s.Require().NoError(err)

	status, apiErr, err := cl.Error(http.MethodDelete, "/genre/"+genre["genre_id"].(string), nil)
	s.Require().NoError(err)
	s.Equal(http.StatusUnprocessableEntity, status)
	s.Equal("related record not found", apiErr.Message)
}

func (s *IntegrationTestSuite) TestListFilterAndPagination() {
	cl := s.Client()

	for _, name := range []string{"Western", "Thriller", "Fantasy", "Film Noir", "Mockumentary"} {
		_, err := cl.Post("/genre", map[string]string{"name": name}, nil)
		s.Require().NoError(err)
	}

	genres := []map[string]interface{}{}
	pagination, _, err := cl.List(client.Path("genre", map[string]string{"name": "noir"}), &genres)
	s.Require().NoError(err)
	s.Equal(1, pagination.TotalItems)
	s.Require().Len(genres, 1)
	s.Equal("Film Noir", genres[0]["name"])

	genres = nil
	pagination, _, err = cl.List(client.Path("genre", map[string]string{"limit": "2"}), &genres)
	s.Require().NoError(err)
	s.Len(genres, 2)
	s.Equal(2, pagination.ItemsPerPage)
	s.GreaterOrEqual(pagination.TotalItems, 5)
}

func (s *IntegrationTestSuite) TestPartialUpdateKeepsFields() {
	cl := s.Client()

	subscription := map[string]interface{}{}
	_, err := cl.Post("/subscription", map[string]interface{}{
		"name":        "Family",
		"price_cents": 1999,
		"description": "up to five profiles",
	}, &subscription)
	s.Require().NoError(err)

	updated := map[string]interface{}{}
	_, err = cl.Put("/subscription/"+subscription["subscription_id"].(string),
		map[string]interface{}{"price_cents": 2099}, &updated)
	s.Require().NoError(err)
	s.Equal("Family", updated["name"])
	s.Equal("up to five profiles", updated["description"])
	s.EqualValues(2099, updated["price_cents"])
}

func (s *IntegrationTestSuite) TestForbiddenWithoutPermission() {
	junior := client.NewWithRouter(s.router).WithRole(core.RoleJunior)
	status, apiErr, err := junior.Error(http.MethodPut,
		"/subscription/11111111-1111-1111-1111-111111111111",
		map[string]interface{}{"price_cents": 1})
	s.Require().NoError(err)
	s.Equal(http.StatusForbidden, status)
	s.Equal("Forbidden", apiErr.Message)
}
