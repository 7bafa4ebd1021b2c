package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tlink/internal/authkit"
)

// ClientConfig contains the values a browser client needs to start linking providers.
type ClientConfig struct {
	BaseURL       string
	SessionHeader string
	Providers     []authkit.Provider
}

type clientProvider struct {
	Provider  string `json:"provider"`
	LoginPath string `json:"loginPath"`
}

// ServeClientConfig emits a JavaScript payload that hydrates window.__TLINK_CONFIG.
func ServeClientConfig(contextGin *gin.Context, configuration ClientConfig) {
	baseURL := strings.TrimRight(configuration.BaseURL, "/")
	if baseURL == "" {
		host := contextGin.Request.Host
		if host == "" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("%s://%s", forwardedProto(contextGin.Request), host)
	}
	providers := make([]clientProvider, 0, len(configuration.Providers))
	for _, provider := range configuration.Providers {
		providers = append(providers, clientProvider{
			Provider:  provider.String(),
			LoginPath: "/auth/" + provider.String() + "/login",
		})
	}
	payload := struct {
		BaseURL       string           `json:"baseUrl"`
		SessionHeader string           `json:"sessionHeader"`
		Providers     []clientProvider `json:"providers"`
	}{
		BaseURL:       baseURL,
		SessionHeader: configuration.SessionHeader,
		Providers:     providers,
	}

	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "web.client_config.encode_failed",
		})
		return
	}

	script := fmt.Sprintf(`(function(){window.__TLINK_CONFIG=Object.freeze(%s);})();`, string(encoded))

	contextGin.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	contextGin.Header("X-Content-Type-Options", "nosniff")
	contextGin.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(script))
}

func forwardedProto(request *http.Request) string {
	if headerValue := request.Header.Get("X-Forwarded-Proto"); headerValue != "" {
		return headerValue
	}
	if request.TLS != nil {
		return "https"
	}
	return "http"
}
