package health

import (
	"context"
	"net/http"

	"github.com/corray333/backend-labs/bakery/internal/service/services/healthsvc"
	"github.com/corray333/backend-labs/bakery/internal/transport/http/response"
)

type service interface {
	Check(ctx context.Context) healthsvc.Report
}

// Health handles GET /health. It always answers 200; the body carries the verdict.
func Health(w http.ResponseWriter, r *http.Request, service service) {
	response.JSON(w, r, http.StatusOK, service.Check(r.Context()))
}
