// internal/portal/endpoints.go
package portal

import "strings"

// DefaultBaseURL is the production portal origin.
const DefaultBaseURL = "https://erp.iitkgp.ac.in"

// DefaultUserAgent is sent on every portal request. The portal serves a degraded page
// to clients it does not recognize as a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Paths below the portal origin.
const (
	pathHomepage  = "/IIT_ERP3/"
	pathLogin     = "/SSOAdministration/auth.htm"
	pathSecurity  = "/SSOAdministration/getSecurityQues.htm"
	pathOTP       = "/SSOAdministration/getEmilOTP.htm"
	pathWelcome   = "/IIT_ERP3/welcome.jsp"
	pathDashboard = "/IIT_ERP3/home.jsp"
)

// Endpoints are the fixed portal URLs.
type Endpoints struct {
	Homepage  string
	Login     string
	Security  string
	OTP       string
	Welcome   string
	Dashboard string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return EndpointsFor(DefaultBaseURL)
}

// EndpointsFor builds the endpoint set under another origin, such as a test server.
func EndpointsFor(base string) Endpoints {
	base = strings.TrimSuffix(base, "/")
	return Endpoints{
		Homepage:  base + pathHomepage,
		Login:     base + pathLogin,
		Security:  base + pathSecurity,
		OTP:       base + pathOTP,
		Welcome:   base + pathWelcome,
		Dashboard: base + pathDashboard,
	}
}
