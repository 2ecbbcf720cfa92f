package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

var (
	// RootCmd is the stratadb_server command when called without subcommands.
	RootCmd = &cobra.Command{
		Use:   "stratadb_server",
		Short: "embeddable key/value storage engine",
		Long: fmt.Sprintf(`StrataDB server (v%s)

Serves StrataDB environments to remote clients over gRPC.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of the server",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stratadb_server v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)

	key := "config"
	RootCmd.PersistentFlags().String(key, "", "optional config file (yaml, toml or json)")
}

// initConfig loads .env files, the optional config file and STRATADB_*
// environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if file, _ := RootCmd.PersistentFlags().GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", file, err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("stratadb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
