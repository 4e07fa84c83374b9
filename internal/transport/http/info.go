package httptransport

import "github.com/iliamunaev/movie-composite-gateway/internal/model"

func serviceInfo() model.ServiceInfo {
	return model.ServiceInfo{
		Message: "Composite gateway is running",
		Services: map[string]string{
			"MS1": "Users Service",
			"MS2": "Movies & People Service",
			"MS3": "Reviews Service",
		},
		Routes: map[string][]string{
			"users": {
				"POST /composite/sessions",
				"POST /composite/users",
				"GET /composite/users/{id}",
				"PATCH /composite/users/{id}",
				"DELETE /composite/users/{id}",
				"GET /composite/users/{id}/status (deprecated)",
				"PATCH /composite/users/{id}/status (deprecated)",
			},
			"movies": {
				"GET /composite/movies",
				"POST /composite/movies",
				"GET /composite/movies/{id}",
				"PUT /composite/movies/{id}",
				"DELETE /composite/movies/{id}",
				"GET /composite/movies/{id}/people",
				"POST /composite/movies/{id}/generate-share-card",
				"GET /composite/movies/{id}/share-card-jobs/{job_id}",
			},
			"people": {
				"GET /composite/people",
				"POST /composite/people",
				"GET /composite/people/{id}",
				"PUT /composite/people/{id}",
				"DELETE /composite/people/{id}",
				"GET /composite/people/{id}/movies",
			},
			"reviews": {
				"GET /composite/reviews",
				"POST /composite/reviews",
				"GET /composite/reviews/{id}",
				"PUT /composite/reviews/{id}",
				"DELETE /composite/reviews/{id}",
				"GET /composite/health",
			},
			"composite": {
				"GET /composite/movie-details/{id}",
			},
		},
	}
}
