// Command tsrepl is an interactive SQL shell for Amazon Timestream built on
// the database/sql driver.
//
//	tsrepl --dsn "Region=us-east-1;Auth=AWS_PROFILE" --format table
//
// Every flag can also be set through the environment with the TSODBC_
// prefix (TSODBC_DSN, TSODBC_FORMAT) or in ~/.tsodbc/tsrepl.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SimonWaldherr/tsodbc/driver"
)

var rootCmd = &cobra.Command{
	Use:           "tsrepl [statement]",
	Short:         "Interactive SQL shell for Amazon Timestream",
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := driver.Open(viper.GetString("dsn"))
		if err != nil {
			return err
		}
		defer db.Close()
		r := &repl{
			db:     db,
			out:    cmd.OutOrStdout(),
			errOut: cmd.ErrOrStderr(),
			format: viper.GetString("format"),
			echo:   viper.GetBool("echo"),
			timing: viper.GetBool("timing"),
		}
		if _, ok := printers[r.format]; !ok {
			return fmt.Errorf("unknown format %q", r.format)
		}
		if len(args) == 1 {
			return r.exec(cmd.Context(), args[0])
		}
		return r.run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringP("dsn", "d", "Region=us-east-1", "ODBC connection string or DSN=<name>")
	rootCmd.PersistentFlags().StringP("format", "f", "table", "output format: "+strings.Join(formatNames(), ", "))
	rootCmd.PersistentFlags().Bool("echo", false, "echo statements before execution")
	rootCmd.PersistentFlags().Bool("timing", false, "print elapsed time and page statistics")
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("echo", rootCmd.PersistentFlags().Lookup("echo"))
	_ = viper.BindPFlag("timing", rootCmd.PersistentFlags().Lookup("timing"))
}

func initConfig() {
	viper.SetEnvPrefix("TSODBC")
	viper.AutomaticEnv()
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".tsodbc"))
	}
	viper.SetConfigName("tsrepl")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(1)
	}
}
