// Package config loads keystone-auth configuration from environment
// variables and an optional YAML settings file.
//
// # Identity service
//
//	KEYSTONE_URL="http://localhost:5000/v3"
//	KEYSTONE_API_VERSION="3"            # 2.0 or 3
//	KEYSTONE_SSL_NO_VERIFY="false"
//	KEYSTONE_SSL_CACERT="/etc/ssl/keystone-ca.pem"
//	KEYSTONE_TOKEN_TIMEOUT_MARGIN="60"  # seconds
//	KEYSTONE_MULTIDOMAIN_SUPPORT="false"
//	KEYSTONE_DEFAULT_DOMAIN="Default"
//
// # WebSSO
//
//	KEYSTONE_WEBSSO_ENABLED="true"      # needs API version 3
//	KEYSTONE_WEBSSO_INITIAL_CHOICE="credentials"
//	KEYSTONE_WEBSSO_CHOICES="credentials=Keystone Credentials,acme_oidc=ACME"
//	KEYSTONE_WEBSSO_IDP_MAPPING="acme_oidc=acme:oidc"
//
// # Settings file
//
// KEYSTONE_SETTINGS_FILE names a YAML file holding WebSSO choices, the IdP
// mapping and the available regions (see FileSettings). Environment values
// override the file. Watcher reloads the file while the host runs.
package config
