// Package client is a Go client for the cvgen probe API.
//
// A run is asynchronous: TriggerRun returns a session id before any probe
// has executed, and the session fills up as probes finish. Poll it until it
// is complete:
//
//	c, _ := client.New("https://cv.example.com", client.WithAPIKey(key))
//	ticket, _ := c.TriggerRun(ctx)
//	session, _ := c.WaitForSession(ctx, ticket.SessionID)
//	for _, r := range session.Results {
//	    fmt.Println(r.ProbeName, r.Status)
//	}
//
// A session with fewer results than scheduled is still running, not failed.
package client
