package external

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"floodfactor/internal/types"
)

// OpenTopographyConfig configures an OpenTopographyClient.
type OpenTopographyConfig struct {
	BaseURL string
	APIKey  string
	// DEMType is the global dataset, SRTMGL1 (30 m) by default.
	DEMType string
	Logger  *slog.Logger
}

// OpenTopographyClient implements DEMSource with the OpenTopography global
// DEM API, requesting ESRI ASCII grid output.
type OpenTopographyClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	demType string
	logger  *slog.Logger
}

func NewOpenTopographyClient(httpClient *http.Client, userAgent string, cfg OpenTopographyConfig) *OpenTopographyClient {
	base := NewBaseClient(httpClient, "opentopography",
		RetryPolicy{MaxRetries: 2, MinWait: 2 * time.Second, MaxWait: 20 * time.Second},
		userAgent,
		WithUpstreamCode(types.ErrCodeUpstreamElevation),
	)
	return NewOpenTopographyClientWithBase(base, cfg)
}

func NewOpenTopographyClientWithBase(base *BaseClient, cfg OpenTopographyConfig) *OpenTopographyClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	demType := cfg.DEMType
	if demType == "" {
		demType = "SRTMGL1"
	}
	return &OpenTopographyClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		demType: demType,
		logger:  logger,
	}
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FetchDEM downloads the DEM for bbox and writes it to dst.
func (c *OpenTopographyClient) FetchDEM(ctx context.Context, bbox types.BoundingBox, dst string) error {
	if err := bbox.Validate(); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("demtype", c.demType)
	params.Set("south", formatDegrees(bbox.South))
	params.Set("north", formatDegrees(bbox.North))
	params.Set("west", formatDegrees(bbox.West))
	params.Set("east", formatDegrees(bbox.East))
	params.Set("outputFormat", "AAIGrid")
	params.Set("API_Key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/API/globaldem?"+params.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create DEM request", err)
	}

	c.logger.InfoContext(ctx, "requesting DEM",
		"dem_type", c.demType,
		"west", bbox.West, "south", bbox.South, "east", bbox.East, "north", bbox.North,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "opentopography error", "status_code", resp.StatusCode, "response_body", string(body))
		return types.NewAppError(types.ErrCodeUpstreamElevation,
			fmt.Sprintf("DEM service returned %d", resp.StatusCode),
			fmt.Errorf("opentopography: %s", strings.TrimSpace(string(body))))
	}

	n, err := writeAtomically(dst, resp.Body)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamElevation, "failed to download DEM", err)
	}
	if n == 0 {
		return types.NewAppError(types.ErrCodeUpstreamElevation, "DEM service returned an empty body", nil)
	}

	c.logger.InfoContext(ctx, "DEM saved", "path", dst, "bytes", n)
	return nil
}

// writeAtomically streams r into a temporary sibling of dst and renames it
// into place, so a failed download never leaves a truncated DEM behind.
func writeAtomically(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, os.Rename(tmp.Name(), dst)
}
