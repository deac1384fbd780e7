package identity

import "time"

// staticUserAgents is a pool of realistic, current browser user agent
// strings spanning the major desktop engines. Rotation picks uniformly
// from this pool; a fixed or custom agent bypasses it entirely.
var staticUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

var acceptHeaders = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,es;q=0.6",
	"en-US,en;q=0.9,fr;q=0.7",
}

const acceptEncoding = "gzip, deflate, br"

var secFetchModes = []string{"navigate", "cors", "no-cors"}
var secFetchSites = []string{"none", "same-origin", "same-site"}
var secFetchDests = []string{"document", "empty"}

// readingPauseMin and readingPauseMax bound the extra delay occasionally
// added after a base sample, to mimic a human pausing on a page.
const (
	readingPauseMin = 1 * time.Second
	readingPauseMax = 3 * time.Second
	readingPauseP   = 0.10
	dntProbability  = 0.30
)

// Headers is a view of the header set GetHeaders produces. Built
// as a type rather than a bare map so callers can apply it to an
// *http.Request without caring about key casing or omission rules.
type Headers map[string]string
