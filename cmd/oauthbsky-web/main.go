// Demo web service: logs users in with their atproto accounts via OAuth,
// keeps a cookie session, and makes a couple of authenticated PDS calls.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/PIPOGit/OAuthBluesky-sub000/oauth"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "oauthbsky-web",
		Usage:   "demo web service with atproto OAuth login",
		Version: versioninfo.Short(),
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:   "serve",
			Usage:  "run the web server",
			Action: serve,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "bind",
					Usage:   "local IP/port to bind to",
					Value:   ":8080",
					EnvVars: []string{"OAUTHBSKY_BIND"},
				},
				&cli.StringFlag{
					Name:    "public-url",
					Usage:   "fully-qualified base URL this service is reachable at; empty means localhost dev mode",
					EnvVars: []string{"OAUTHBSKY_PUBLIC_URL"},
				},
				&cli.StringFlag{
					Name:    "scopes",
					Usage:   "space-separated OAuth scopes to request",
					Value:   "atproto transition:generic",
					EnvVars: []string{"OAUTHBSKY_SCOPES"},
				},
				&cli.StringFlag{
					Name:    "client-secret-key",
					Usage:   "multibase P-256 private key for confidential client mode",
					EnvVars: []string{"OAUTHBSKY_CLIENT_SECRET_KEY"},
				},
				&cli.StringFlag{
					Name:    "client-secret-key-id",
					Usage:   "kid for the client secret key",
					Value:   "key-1",
					EnvVars: []string{"OAUTHBSKY_CLIENT_SECRET_KEY_ID"},
				},
				&cli.StringFlag{
					Name:    "cookie-secret",
					Usage:   "secret for cookie session encryption",
					Value:   "dev-cookie-secret-please-change",
					EnvVars: []string{"OAUTHBSKY_COOKIE_SECRET"},
				},
				&cli.StringFlag{
					Name:    "log-level",
					Usage:   "log verbosity (debug, info, warn, error)",
					Value:   "info",
					EnvVars: []string{"OAUTHBSKY_LOG_LEVEL"},
				},
			},
		},
	}
	return app.Run(args)
}

func configureLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func buildClientConfig(cctx *cli.Context) (oauth.ClientConfig, error) {
	scopes := strings.Fields(cctx.String("scopes"))
	publicURL := strings.TrimSuffix(cctx.String("public-url"), "/")

	var config oauth.ClientConfig
	if publicURL == "" {
		bind := cctx.String("bind")
		if strings.HasPrefix(bind, ":") {
			bind = "127.0.0.1" + bind
		}
		config = oauth.NewLocalhostConfig("http://"+bind+"/oauth/callback", scopes)
	} else {
		config = oauth.NewPublicConfig(publicURL+"/oauth/client-metadata.json", publicURL+"/oauth/callback", scopes)
	}
	if key := cctx.String("client-secret-key"); key != "" {
		if err := config.SetClientSecret(key, cctx.String("client-secret-key-id")); err != nil {
			return config, err
		}
	}
	config.UserAgent = "oauthbsky-web/" + versioninfo.Short()
	return config, nil
}
