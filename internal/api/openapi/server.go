// server.go — интерфейс операций API и их привязка к маршрутам chi.
// Параметры path/query разбираются через oapi-codegen runtime.
package openapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface — операции API (operationId из openapi.yaml).
type ServerInterface interface {
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/imports
	CreateImport(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/records
	ListRecords(w http.ResponseWriter, r *http.Request, params ListRecordsParams)
	// DELETE /api/v1/records
	ClearRecords(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/records/{record_id}
	GetRecord(w http.ResponseWriter, r *http.Request, recordID RecordID)
	// POST /api/v1/enrichments
	RunEnrichment(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/events
	StreamEvents(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError — параметр запроса не удалось разобрать.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("некорректный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ErrorHandlerFunc — обработчик ошибок разбора параметров.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

// ServerInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc ErrorHandlerFunc
}

// ListRecords разбирает status, limit, offset.
func (siw *ServerInterfaceWrapper) ListRecords(w http.ResponseWriter, r *http.Request) {
	var params ListRecordsParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "status", query, &params.Status); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "status", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &params.Offset); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "offset", Err: err})
		return
	}

	siw.Handler.ListRecords(w, r, params)
}

// GetRecord разбирает record_id.
func (siw *ServerInterfaceWrapper) GetRecord(w http.ResponseWriter, r *http.Request) {
	var recordID RecordID

	err := runtime.BindStyledParameterWithOptions("simple", "record_id", chi.URLParam(r, "record_id"), &recordID,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "record_id", Err: err})
		return
	}

	siw.Handler.GetRecord(w, r, recordID)
}

// HandlerFromMux регистрирует все операции на router.
// errHandler вызывается при ошибке разбора параметров.
func HandlerFromMux(si ServerInterface, router chi.Router, errHandler ErrorHandlerFunc) http.Handler {
	if errHandler == nil {
		errHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := &ServerInterfaceWrapper{Handler: si, ErrorHandlerFunc: errHandler}

	router.Get("/health/live", si.HealthLive)
	router.Get("/health/ready", si.HealthReady)
	router.Get("/metrics", si.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/imports", si.CreateImport)
		r.Get("/records", wrapper.ListRecords)
		r.Delete("/records", si.ClearRecords)
		r.Get("/records/{record_id}", wrapper.GetRecord)
		r.Post("/enrichments", si.RunEnrichment)
		r.Get("/events", si.StreamEvents)
	})

	return router
}
