package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sushant-115/stratadb/core/security/encryption/internaltls"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Generate a CA and server/client certificates for mutual TLS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		hosts, _ := cmd.Flags().GetString("hosts")
		validFor, _ := cmd.Flags().GetDuration("valid-for")

		if err := internaltls.GenerateCerts(dir, strings.Split(hosts, ","), validFor); err != nil {
			return fmt.Errorf("failed to generate certificates: %w", err)
		}
		server, client := internaltls.Generated(dir)
		fmt.Printf("serve flags: --tls-ca=%s --tls-cert=%s --tls-key=%s\n", server.CA, server.Cert, server.Key)
		fmt.Printf("cli flags:   --tls-ca=%s --tls-cert=%s --tls-key=%s\n", client.CA, client.Cert, client.Key)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(certsCmd)

	key := "dir"
	certsCmd.Flags().String(key, "certs", "output directory")
	key = "hosts"
	certsCmd.Flags().String(key, "localhost,127.0.0.1", "comma separated host names and IPs of the server certificate")
	key = "valid-for"
	certsCmd.Flags().Duration(key, 365*24*time.Hour, "validity of the certificates")
}
