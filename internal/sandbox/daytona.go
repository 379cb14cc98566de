package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	apiclient "github.com/daytonaio/daytona/libs/api-client-go"
	toolbox "github.com/daytonaio/daytona/libs/toolbox-api-client-go"
)

const daytonaSourceHeader = "fetch"

// DaytonaConfig configures the remote Daytona sandbox backend.
type DaytonaConfig struct {
	APIKey         string
	JWTToken       string
	OrganizationID string
	APIURL         string
	SandboxID      string
}

// ResolveDaytonaConfig fills in defaults from the environment, mirroring
// the fail-fast env resolution style of internal/config.
func ResolveDaytonaConfig(cfg DaytonaConfig) (DaytonaConfig, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.JWTToken = strings.TrimSpace(cfg.JWTToken)
	cfg.OrganizationID = strings.TrimSpace(cfg.OrganizationID)
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	cfg.SandboxID = strings.TrimSpace(cfg.SandboxID)

	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("DAYTONA_API_KEY"))
	}
	if cfg.JWTToken == "" {
		cfg.JWTToken = strings.TrimSpace(os.Getenv("DAYTONA_JWT_TOKEN"))
	}
	if cfg.OrganizationID == "" {
		cfg.OrganizationID = strings.TrimSpace(os.Getenv("DAYTONA_ORGANIZATION_ID"))
	}
	if cfg.APIURL == "" {
		cfg.APIURL = strings.TrimSpace(os.Getenv("DAYTONA_API_URL"))
		if cfg.APIURL == "" {
			cfg.APIURL = "https://app.daytona.io/api"
		}
	}
	if cfg.SandboxID == "" {
		cfg.SandboxID = strings.TrimSpace(os.Getenv("DAYTONA_SANDBOX_ID"))
	}

	if cfg.APIKey == "" && cfg.JWTToken == "" {
		return cfg, errors.New("daytona api key or jwt token is required")
	}
	if cfg.JWTToken != "" && cfg.OrganizationID == "" {
		return cfg, errors.New("daytona organization id is required when using a jwt token")
	}
	if cfg.SandboxID == "" {
		return cfg, errors.New("daytona sandbox id is required")
	}
	return cfg, nil
}

// DaytonaBackend talks to a remote Daytona sandbox via the toolbox API
// client: execInSandbox maps to a toolbox process-exec call,
// spawnInSandbox maps to a long-lived toolbox session with streamed output
// (spec section 6.4.1).
type DaytonaBackend struct {
	cfg       DaytonaConfig
	apiClient *apiclient.APIClient

	mu          sync.Mutex
	toolbox     *toolbox.APIClient
	proxyCached string
}

// NewDaytonaBackend constructs a backend bound to one sandbox.
func NewDaytonaBackend(cfg DaytonaConfig) (*DaytonaBackend, error) {
	cfg, err := ResolveDaytonaConfig(cfg)
	if err != nil {
		return nil, err
	}

	scheme, host, basePath, err := parseBaseURL(cfg.APIURL)
	if err != nil {
		return nil, err
	}

	apiCfg := apiclient.NewConfiguration()
	apiCfg.Host = host
	apiCfg.Scheme = scheme
	apiCfg.HTTPClient = &http.Client{}
	apiCfg.AddDefaultHeader("X-Daytona-Source", daytonaSourceHeader)
	if cfg.JWTToken != "" && cfg.OrganizationID != "" {
		apiCfg.AddDefaultHeader("X-Daytona-Organization-ID", cfg.OrganizationID)
	}
	apiCfg.Servers = apiclient.ServerConfigurations{
		{URL: fmt.Sprintf("%s://%s%s", scheme, host, basePath)},
	}

	return &DaytonaBackend{cfg: cfg, apiClient: apiclient.NewAPIClient(apiCfg)}, nil
}

func (b *DaytonaBackend) authContext(ctx context.Context) context.Context {
	token := b.cfg.APIKey
	if token == "" {
		token = b.cfg.JWTToken
	}
	return context.WithValue(ctx, apiclient.ContextAccessToken, token)
}

func (b *DaytonaBackend) authToken() string {
	if b.cfg.APIKey != "" {
		return b.cfg.APIKey
	}
	return b.cfg.JWTToken
}

func (b *DaytonaBackend) toolboxClient(ctx context.Context) (*toolbox.APIClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.toolbox != nil {
		return b.toolbox, nil
	}

	result, httpResp, err := b.apiClient.SandboxAPI.GetToolboxProxyUrl(b.authContext(ctx), b.cfg.SandboxID).Execute()
	if err != nil {
		return nil, fmt.Errorf("sandbox_unavailable: get toolbox proxy url: %w (%v)", err, httpResp)
	}
	proxyURL := strings.TrimRight(result.GetUrl(), "/") + "/" + b.cfg.SandboxID

	scheme, host, basePath, err := parseBaseURL(proxyURL)
	if err != nil {
		return nil, err
	}

	cfg := toolbox.NewConfiguration()
	cfg.Host = host
	cfg.Scheme = scheme
	cfg.AddDefaultHeader("Authorization", "Bearer "+b.authToken())
	cfg.AddDefaultHeader("X-Daytona-Source", daytonaSourceHeader)
	if b.cfg.JWTToken != "" && b.cfg.OrganizationID != "" {
		cfg.AddDefaultHeader("X-Daytona-Organization-ID", b.cfg.OrganizationID)
	}
	cfg.Servers = toolbox.ServerConfigurations{{URL: fmt.Sprintf("%s://%s%s", scheme, host, basePath)}}

	b.toolbox = toolbox.NewAPIClient(cfg)
	return b.toolbox, nil
}

func parseBaseURL(raw string) (scheme, host, basePath string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid sandbox api url %q: %w", raw, err)
	}
	return u.Scheme, u.Host, u.Path, nil
}

// Ready confirms the sandbox is reachable via a toolbox health probe.
func (b *DaytonaBackend) Ready(ctx context.Context) error {
	tc, err := b.toolboxClient(ctx)
	if err != nil {
		return err
	}
	if _, _, err := tc.InfoAPI.GetWorkDir(ctx).Execute(); err != nil {
		return fmt.Errorf("sandbox_unavailable: %w", err)
	}
	return nil
}

func (b *DaytonaBackend) ExecInSandbox(ctx context.Context, command string, args []string, opts ExecOptions) (ExecResult, error) {
	tc, err := b.toolboxClient(ctx)
	if err != nil {
		return ExecResult{}, err
	}

	full := shellJoin(command, args)
	req := toolbox.NewExecuteRequest(full)
	if opts.Cwd != "" {
		req.SetCwd(opts.Cwd)
	}
	if opts.TimeoutMs > 0 {
		req.SetTimeout(int32(opts.TimeoutMs / 1000))
	}

	resp, httpResp, err := tc.ProcessAPI.ExecuteCommand(ctx).Request(*req).Execute()
	if err != nil {
		return ExecResult{}, fmt.Errorf("daytona execute command: %w (%v)", err, httpResp)
	}
	exitCode := 0
	if resp.ExitCode != nil {
		exitCode = int(*resp.ExitCode)
	}
	return ExecResult{ExitCode: exitCode, Stdout: resp.Result}, nil
}

// SpawnInSandbox is not yet supported against the remote toolbox API for
// fully streaming sessions; it falls back to a blocking ExecInSandbox call
// wrapped in the SpawnHandle shape so callers see a uniform interface.
func (b *DaytonaBackend) SpawnInSandbox(ctx context.Context, command string, args []string, opts SpawnOptions) (*SpawnHandle, error) {
	return nil, errors.New("sandbox: daytona backend does not support streaming spawn, use a local backend for harness execution")
}

func shellJoin(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return command + " " + strings.Join(quoted, " ")
}
