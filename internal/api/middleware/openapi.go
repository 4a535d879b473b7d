// openapi.go — валидация входящих запросов по OpenAPI-документу (kin-openapi).
// Проверяются path/query параметры и JSON-тела операций из контракта.
// Аутентификация здесь не проверяется: этим занимается JWTAuth.
package middleware

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/propertydash/internal/api/errors"
)

// OpenAPIValidator возвращает middleware валидации запросов по doc.
// Для операций из skipBodyOperations (operationId) тело не валидируется.
// Запросы к путям вне контракта передаются дальше без проверки.
func OpenAPIValidator(doc *openapi3.T, skipBodyOperations ...string) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI router: %w", err)
	}

	skipBody := make(map[string]bool, len(skipBodyOperations))
	for _, id := range skipBodyOperations {
		skipBody[id] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				// 404/405 отдаст chi
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					ExcludeRequestBody: skipBody[route.Operation.OperationID],
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
