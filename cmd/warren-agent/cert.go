package main

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/warren-agent/pkg/agentconfig"
	"github.com/cuemby/warren-agent/pkg/security"
	"github.com/spf13/cobra"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Inspect and manage the mTLS material used to dial the control plane",
}

var certStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the node certificate's validity and rotation status",
	RunE:  runCertStatus,
}

var certRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete the certificate directory, forcing re-provisioning",
	Long: `remove deletes the node certificate, its key, and the CA certificate
from model.tls.cert_dir. The next run command will fail to dial the control
plane until the directory is repopulated out-of-band. Refuses to run
without --force.`,
	RunE: runCertRemove,
}

func init() {
	certRemoveCmd.Flags().Bool("force", false, "Actually remove the certificate directory instead of only reporting what would happen")
	certCmd.AddCommand(certStatusCmd)
	certCmd.AddCommand(certRemoveCmd)
}

func certDirFromConfig(cmd *cobra.Command) (string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Model.TLS.CertDir == "" {
		return "", fmt.Errorf("model.tls.cert_dir is not set in %s", configPath)
	}
	return cfg.Model.TLS.CertDir, nil
}

func runCertStatus(cmd *cobra.Command, args []string) error {
	certDir, err := certDirFromConfig(cmd)
	if err != nil {
		return err
	}

	if !security.CertExists(certDir) {
		return fmt.Errorf("no certificate found in %s", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return fmt.Errorf("load certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return fmt.Errorf("load CA certificate: %w", err)
	}

	if err := security.ValidateCertChain(cert.Leaf, caCert); err != nil {
		fmt.Printf("warning: %v\n", err)
	}

	info := security.GetCertInfo(cert.Leaf)
	info["rotation_needed"] = security.CertNeedsRotation(cert.Leaf)
	info["expires_at"] = security.GetCertExpiry(cert.Leaf)
	info["time_remaining"] = security.GetCertTimeRemaining(cert.Leaf).String()

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode certificate info: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runCertRemove(cmd *cobra.Command, args []string) error {
	certDir, err := certDirFromConfig(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	if !security.CertExists(certDir) {
		fmt.Printf("no certificate found in %s; nothing to remove\n", certDir)
		return nil
	}

	if !force {
		fmt.Printf("would remove certificate directory %s\n", certDir)
		fmt.Println("re-run with --force to actually remove it")
		return nil
	}

	if err := security.RemoveCerts(certDir); err != nil {
		return fmt.Errorf("remove certificates: %w", err)
	}
	fmt.Printf("removed certificate directory %s\n", certDir)
	return nil
}
