// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the shim
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the authentication shim",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides AUDIBLE_PORT)",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Read challenge answers from stdin and open captchas in the browser",
			},
		},
		Action: r.Serve,
	}
}

// authCommand signs a running shim in and answers its challenges
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the shim's session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authenticate the shim (POST /auth)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "email",
						Usage: "Account email (defaults to AUDIBLE_EMAIL)",
					},
					&cli.StringFlag{
						Name:  "password",
						Usage: "Account password (defaults to AUDIBLE_PASSWORD)",
					},
					&cli.StringFlag{
						Name:    "country",
						Aliases: []string{"c"},
						Usage:   "Marketplace country code (defaults to AUDIBLE_COUNTRY_CODE)",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "answer",
				Usage: "Answer the pending challenge (POST /input)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "answer"},
				},
				Action: r.AuthAnswer,
			},
			{
				Name:  "status",
				Usage: "Check current authentication state (calls /health)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// apiCommand handles calls proxied through the shim
func apiCommand(r *Runner) *cli.Command {
	proxyFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "params",
				Aliases: []string{"d"},
				Usage:   "JSON object of parameters",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		}
	}

	return &cli.Command{
		Name:  "api",
		Usage: "Call the Audible API through the shim",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path, params go to the query string",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     proxyFlags(),
				Action:    r.APIGet,
			},
			{
				Name:      "put",
				Usage:     "PUT a path, params are the JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     proxyFlags(),
				Action:    r.APIPut,
			},
			{
				Name:      "post",
				Usage:     "POST a path, params are the JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     proxyFlags(),
				Action:    r.APIPost,
			},
		},
	}
}

// libraryCommand fetches, caches and exports the library
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Show or export the audiobook library",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "cached",
				Usage: "Read from the local cache instead of the shim",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, csv, markdown or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file (a directory for markdown) instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "covers",
				Usage: "Download cover images (markdown output only)",
			},
		},
		Action: r.Library,
	}
}

// setupCommand writes a config file and prepares the library database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the library database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
			},
		},
		Action: r.Setup,
	}
}
