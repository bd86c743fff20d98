package http

import (
	"net/url"

	"github.com/nekogravitycat/futsal-booking-session/internal/payment"
)

// redirectPresenter turns the resolver's notice and navigation into a
// See Other redirect carrying the notice in the query.
type redirectPresenter struct {
	state   payment.State
	message string
	target  string
}

func (p *redirectPresenter) Notify(state payment.State, message string) {
	p.state = state
	p.message = message
}

func (p *redirectPresenter) Navigate(target string) {
	p.target = target
}

// Location builds the redirect for an outcome. Unparseable targets fall back to "/".
func Location(out payment.Outcome) string {
	u, err := url.Parse(out.Target)
	if err != nil || out.Target == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("status", string(out.State))
	if out.Message != "" {
		q.Set("notice", out.Message)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
