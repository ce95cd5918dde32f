/*
Package security provides client-side certificate management for mutual
TLS authentication against a control plane.

An agent never issues or signs certificates itself: it loads a node
certificate and the control plane's CA certificate from a local directory
(model.tls.cert_dir in the agent's config), presents them during mTLS
dialing, and periodically checks whether the node certificate is nearing
expiry so an operator can re-provision it before it lapses.

# Certificate Layout

	<certDir>/
	  node.crt   PEM-encoded leaf certificate
	  node.key   PEM-encoded RSA private key
	  ca.crt     PEM-encoded CA certificate used to verify the control plane

CertExists reports whether all three files are present. RemoveCerts
deletes the directory, used when a node is being re-enrolled (see the
warren-agent cert remove subcommand).

# Loading

LoadCertFromFile / LoadCACertFromFile load node.crt/node.key and ca.crt
respectively. Provisioning those files is out of this package's scope: the
agent only ever consumes certificates issued elsewhere, never holding a CA
key of its own.

# Rotation

CertNeedsRotation reports true once less than 30 days remain before
NotAfter; GetCertExpiry and GetCertTimeRemaining expose the raw expiry
data this check is based on. ValidateCertChain verifies a leaf certificate
against a CA certificate this package does not manage. The warren-agent
daemon polls CertNeedsRotation hourly and the cert status subcommand
reports it on demand.

# Usage

	if !security.CertExists(certDir) {
		return fmt.Errorf("no certificate enrolled in %s", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return err
	}
	if security.CertNeedsRotation(cert.Leaf) {
		log.Warn().Time("not_after", cert.Leaf.NotAfter).Msg("certificate nearing expiry")
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPoolFrom(caCert),
		MinVersion:   tls.VersionTLS13,
	}
*/
package security
