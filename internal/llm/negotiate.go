package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/pkg/logger"
)

// minChatVersion is the first server release with /api/chat.
var minChatVersion = [3]int{0, 1, 14}

// Negotiate probes the server once and returns the protocol to use: native
// chat or generate depending on the reported version, or OpenAI-compatible.
func Negotiate(ctx context.Context, httpClient *http.Client, baseURL string) (Protocol, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")

	if data, err := fetch(ctx, httpClient, base+"/api/version"); err == nil {
		version := gjson.GetBytes(data, "version").String()
		if version != "" && versionBefore(version, minChatVersion) {
			return ProtocolGenerate, nil
		}
		return ProtocolChat, nil
	}
	if err := probe(ctx, httpClient, base+"/api/tags"); err == nil {
		return ProtocolChat, nil
	}
	if err := probe(ctx, httpClient, base+"/v1/models"); err == nil {
		return ProtocolOpenAI, nil
	}
	return "", fmt.Errorf("%w: no supported API at %s", ErrBackendUnavailable, base)
}

func versionBefore(version string, floor [3]int) bool {
	parts := strings.SplitN(strings.TrimPrefix(version, "v"), ".", 3)
	for i := 0; i < 3; i++ {
		n := 0
		if i < len(parts) {
			digits := strings.TrimFunc(parts[i], func(r rune) bool { return r < '0' || r > '9' })
			if end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); end >= 0 {
				digits = digits[:end]
			}
			n, _ = strconv.Atoi(digits)
		}
		if n != floor[i] {
			return n < floor[i]
		}
	}
	return false
}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	BaseURL  string
	Model    string
	APIKey   string
	Protocol Protocol
}

// NewBackend builds the backend for cfg, negotiating the protocol when it is
// auto. A server that cannot be reached falls back to native chat so the
// service can start and report itself degraded.
func NewBackend(ctx context.Context, cfg BackendConfig, httpClient *http.Client) Backend {
	protocol := cfg.Protocol
	if protocol == "" || protocol == ProtocolAuto {
		negotiated, err := Negotiate(ctx, httpClient, cfg.BaseURL)
		if err != nil {
			logger.Warn("Protocol negotiation failed, assuming chat API",
				zap.String("base_url", cfg.BaseURL),
				zap.Error(err),
			)
			negotiated = ProtocolChat
		}
		protocol = negotiated
	}

	logger.Info("Generation backend selected",
		zap.String("protocol", string(protocol)),
		zap.String("model", cfg.Model),
	)

	if protocol == ProtocolOpenAI {
		return NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, cfg.Model)
	}
	return NewOllamaBackend(cfg.BaseURL, cfg.Model, protocol, &http.Client{})
}
