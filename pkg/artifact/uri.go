// Package artifact implements the Artifact Store Adapter (spec.md §4, URI
// scheme in §6): content-addressed, versioned artifact storage behind the
// `artifact://{app}/{user}/{session}/{filename}?version={N}` URI scheme,
// grounded on the teacher's runtime/storage/local FileStore (atomic
// write-then-rename, `.meta` JSON sidecar, path-traversal validation)
// generalized from PromptKit's single-version media blobs to SAM's
// multi-version artifact model.
package artifact

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
)

// URIParts is a parsed artifact:// URI.
type URIParts struct {
	App      string
	User     string
	Session  string
	Filename string
	Version  int // 0 means "latest", unset in the URI
}

// BuildURI constructs an artifact:// URI for the given coordinates. version
// <= 0 omits the version query parameter (meaning "latest").
func BuildURI(app, user, session, filename string, version int) string {
	u := &url.URL{
		Scheme: "artifact",
		Host:   app,
		Path:   "/" + user + "/" + session + "/" + filename,
	}
	if version > 0 {
		q := u.Query()
		q.Set("version", strconv.Itoa(version))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ParseURI parses an artifact:// URI into its component parts.
func ParseURI(raw string) (URIParts, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URIParts{}, sameerrors.New(sameerrors.ProtocolError, "artifact", "ParseURI", err)
	}
	if u.Scheme != "artifact" {
		return URIParts{}, sameerrors.New(sameerrors.ProtocolError, "artifact", "ParseURI",
			fmt.Errorf("unsupported scheme %q, expected \"artifact\"", u.Scheme))
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if u.Host == "" || len(segments) != 3 || segments[0] == "" || segments[1] == "" || segments[2] == "" {
		return URIParts{}, sameerrors.New(sameerrors.ProtocolError, "artifact", "ParseURI",
			fmt.Errorf("malformed artifact URI %q, expected artifact://app/user/session/filename", raw))
	}

	parts := URIParts{App: u.Host, User: segments[0], Session: segments[1], Filename: segments[2]}

	if v := u.Query().Get("version"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return URIParts{}, sameerrors.New(sameerrors.ProtocolError, "artifact", "ParseURI",
				fmt.Errorf("invalid version %q", v))
		}
		parts.Version = n
	}
	return parts, nil
}
