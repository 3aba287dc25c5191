package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORS 根据逗号分隔的来源列表构造跨域中间件，"*" 表示放开全部来源。
func CORS(origins string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, 4)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}).Handler
}
