package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgflowcfg"
	"github.com/ha1tch/pgflow/sqlclient"
)

func newCreateSlotCmd() *cobra.Command {
	var (
		configFile string
		host       string
		port       int
		database   string
		user       string
		password   string
		temporary  bool
	)

	cmd := &cobra.Command{
		Use:   "create-slot NAME",
		Short: "Create a logical replication slot using the pgoutput plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pgflowcfg.Load(configFile)
			if err != nil {
				return err
			}
			client, err := sqlclient.Connect(cmd.Context(), first(host, cfg.Host), firstInt(port, cfg.Port), pgauth.Params{
				Database: first(database, cfg.Database),
				User:     first(user, cfg.User),
				Password: first(password, cfg.Password),
			}, nil, sqlclient.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.CreateSlot(cmd.Context(), args[0], temporary)
			if err != nil {
				return err
			}
			fmt.Printf("created slot %q at %s (snapshot %s)\n", info.SlotName, info.ConsistentPoint, info.SnapshotName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file path")
	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port")
	cmd.Flags().StringVarP(&database, "database", "d", "", "database name")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().BoolVar(&temporary, "temporary", false, "create a temporary slot")
	return cmd
}

func newDropSlotCmd() *cobra.Command {
	var (
		configFile string
		host       string
		port       int
		database   string
		user       string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "drop-slot NAME",
		Short: "Drop a logical replication slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pgflowcfg.Load(configFile)
			if err != nil {
				return err
			}
			client, err := sqlclient.Connect(cmd.Context(), first(host, cfg.Host), firstInt(port, cfg.Port), pgauth.Params{
				Database: first(database, cfg.Database),
				User:     first(user, cfg.User),
				Password: first(password, cfg.Password),
			}, nil, sqlclient.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.DropSlot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("dropped slot %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file path")
	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port")
	cmd.Flags().StringVarP(&database, "database", "d", "", "database name")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
