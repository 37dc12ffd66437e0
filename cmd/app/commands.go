package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/virt/internal"
	"github.com/starford/virt/internal/client"
	"github.com/starford/virt/internal/names"
	"github.com/starford/virt/internal/registrar"
	"github.com/starford/virt/internal/resolver"
)

// registry builds a client for the configured registrar.
func registry(cmd *cli.Command) (*client.Client, *internal.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return internal.NewClient(&cfg.Resolver), cfg, nil
}

// splitName parses "label.tag".
func splitName(cmd *cli.Command) (string, string, error) {
	arg := cmd.Args().First()
	i := strings.LastIndex(arg, ".")
	if i <= 0 || i == len(arg)-1 {
		return "", "", cli.Exit(fmt.Sprintf("expected <label>.<tag>, got %q", arg), 2)
	}
	return arg[:i], arg[i+1:], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optional returns a pointer to the flag value when it was given.
func optional(cmd *cli.Command, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.String(name)
	return &v
}

func secretFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "secret",
		Usage:    "Secret returned at registration",
		Sources:  cli.EnvVars("VIRT_SECRET"),
		Required: true,
	}
}

func metadataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "target", Usage: "Target URL or IP address"},
		&cli.StringFlag{Name: "title", Usage: "Display title"},
		&cli.StringFlag{Name: "description", Usage: "Short description"},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a virt:// name and write its content to stdout",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg, cfg, err := registry(cmd)
			if err != nil {
				return err
			}
			name := cmd.Args().First()
			if name == "" {
				return cli.Exit("missing name", 2)
			}
			if !strings.Contains(name, "://") {
				name = names.Scheme + name
			}

			logger := internal.NewLogger(cmd.Root().ErrWriter, cfg.App.LogLevel)
			res, err := internal.NewResolver(&cfg.Resolver, reg, logger)
			if err != nil {
				return err
			}

			out := res.Resolve(ctx, name)
			outcomeColor(out.Outcome).Fprintf(cmd.Root().ErrWriter, "%s: %s %s (%d %s)\n",
				out.Name, out.State, out.Outcome, out.Status, out.ContentType)
			if out.Outcome == resolver.Denied {
				return cli.Exit(out.Err.Error(), 3)
			}
			_, err = cmd.Root().Writer.Write(out.Body)
			return err
		},
	}
}

func outcomeColor(o resolver.Outcome) *color.Color {
	switch o {
	case resolver.Resolved:
		return color.New(color.FgHiGreen)
	case resolver.Fallback:
		return color.New(color.FgHiYellow)
	default:
		return color.New(color.FgHiRed)
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check whether a name is available",
		ArgsUsage: "<label>.<tag>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			label, tag, err := splitName(cmd)
			if err != nil {
				return err
			}
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			av, err := reg.Check(ctx, label, tag)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, av)
		},
	}
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Show the record behind a name",
		ArgsUsage: "<label>.<tag>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			label, tag, err := splitName(cmd)
			if err != nil {
				return err
			}
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			lr, err := reg.Lookup(ctx, label, tag)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, lr)
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search registered names",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of hits"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			hits, err := reg.Search(ctx, query, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, hits)
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a name and print its secret",
		ArgsUsage: "<label>.<tag>",
		Flags:     metadataFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			label, tag, err := splitName(cmd)
			if err != nil {
				return err
			}
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			out, err := reg.Register(ctx, registrar.RegisterRequest{
				Label:       label,
				Tag:         tag,
				Target:      cmd.String("target"),
				Title:       cmd.String("title"),
				Description: cmd.String("description"),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, out)
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update the target or metadata of a name",
		ArgsUsage: "<label>.<tag>",
		Flags:     append(metadataFlags(), secretFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			label, tag, err := splitName(cmd)
			if err != nil {
				return err
			}
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			out, err := reg.Update(ctx, registrar.UpdateRequest{
				Label:       label,
				Tag:         tag,
				Secret:      cmd.String("secret"),
				Target:      optional(cmd, "target"),
				Title:       optional(cmd, "title"),
				Description: optional(cmd, "description"),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, out)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a name",
		ArgsUsage: "<label>.<tag>",
		Flags:     []cli.Flag{secretFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			label, tag, err := splitName(cmd)
			if err != nil {
				return err
			}
			reg, _, err := registry(cmd)
			if err != nil {
				return err
			}
			if err := reg.Delete(ctx, registrar.DeleteRequest{Label: label, Tag: tag, Secret: cmd.String("secret")}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "deleted %s.%s\n", label, tag)
			return nil
		},
	}
}
