// ABOUTME: MCP serve command
// ABOUTME: Serves a tracking session over stdio for AI agents, fed by pushed fixes

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/offroute/internal/config"
	"github.com/harper/offroute/internal/mcp"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/session"
	"github.com/harper/offroute/internal/storage"
	"github.com/spf13/cobra"
)

var (
	mcpNoJournal  bool
	mcpPermission string
	mcpGrant      string
	mcpPower      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Long: `Start an MCP server on stdio. Agents set a planned route, start tracking,
and push fixes; the alert sound plays on this machine when a pushed fix
leaves the route. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseAuthorizationStatus(mcpPermission)
		if err != nil {
			return err
		}
		answer, err := models.ParseAuthorizationStatus(mcpGrant)
		if err != nil {
			return err
		}
		power, err := powerSource(mcpPower)
		if err != nil {
			return err
		}

		feed := provider.NewManual()
		authority := provider.NewStaticAuthority(status, answer)
		sess, err := session.New(session.Options{
			Provider:  &provider.Guarded{Provider: feed, Authority: authority},
			Authority: authority,
			Sounds:    newResolver(cfg, os.Stderr),
			Power:     power,
			Settings:  provider.EditorSettings{Path: config.GetConfigPath()},
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }()
		authority.SetListener(sess.OnAuthorizationChanged)

		var repo storage.Repository
		if !mcpNoJournal {
			repo, err = openJournal()
			if err != nil {
				return err
			}
		}

		server, err := mcp.NewServer(sess, feed, mcp.Options{
			Defaults: cfg.SessionConfig(),
			Sound:    cfg.SoundAsset,
			Journal:  repo,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return server.Serve(ctx)
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoJournal, "no-journal", false, "do not record tracking runs")
	mcpCmd.Flags().StringVar(&mcpPermission, "permission", "always", "initial location permission")
	mcpCmd.Flags().StringVar(&mcpGrant, "grant", "always", "answer to permission requests")
	mcpCmd.Flags().StringVar(&mcpPower, "power", "auto", "external power: auto, on, or off")

	rootCmd.AddCommand(mcpCmd)
}
