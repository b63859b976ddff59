package handler

import "net/http"

type redirectResponse struct {
	url    string
	status int
}

func (rr redirectResponse) Render(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, rr.url, rr.status)
	return nil
}

// Redirect responds with 302 Found.
func Redirect(url string) Response {
	return redirectResponse{url: url, status: http.StatusFound}
}

// RedirectWithStatus responds with a custom 3xx status.
func RedirectWithStatus(url string, status int) Response {
	if status < 300 || status >= 400 {
		status = http.StatusFound
	}
	return redirectResponse{url: url, status: status}
}
