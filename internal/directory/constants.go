package directory

// Baked-in vendor directory identity, required for wire compatibility with
// the existing fleet of devices. See spec §6 "Baked-in constants".
const (
	MainServer = "www.easy4ipcloud.com"
	MainPort   = 8800

	// AnonymousUsername/AnonymousUserKey identify the unauthenticated
	// (dtype=0) client variant.
	AnonymousUsername = "P2PClient"
	AnonymousUserKey   = "YXQ3Mahe-5H-R1Z_"

	// AuthUsername/AuthUserKey/AuthRandSalt identify the authenticated
	// (dtype>0) client variant; AuthRandSalt is also the salt mixed into
	// the login key derived from the user's own credentials.
	AuthUsername = "cba1b29e32cb17aa46b8ff9e73c7f40b"
	AuthUserKey   = "996103384cdf19179e19243e959bbf8b"
	AuthRandSalt  = "5daf91fc5cfc1be8e081cfb08f792726"
)
