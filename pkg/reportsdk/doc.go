/*
Package reportsdk is a Go client for the printq edge.

Callers authenticate with a bearer token from their identity provider. Any
oauth2.TokenSource works; NewClientCredentials builds one for the common
machine-to-machine case:

	client := reportsdk.NewClientCredentials(ctx, "https://reports.example.com", clientcredentials.Config{
		ClientID:       id,
		ClientSecret:   secret,
		TokenURL:       "https://tenant.auth0.com/oauth/token",
		EndpointParams: url.Values{"audience": {"https://reports.example.com"}},
	})

# Submitting

The secure flow issues a short-lived link and posts the parameters to it:

	link, err := client.IssueLink(ctx, "crm-trade-invoice", 30)
	res, err := client.SubmitLink(ctx, link, map[string]any{"tradeid": 42})

Submit skips the link and posts directly. Both return a DispatchResponse
whose Status is StatusCached or StatusQueued; either way the artifact id is
known immediately.

# Fetching

Rendering is asynchronous. Fetch returns ErrNotFound until a worker has
uploaded the PDF; Await polls until it appears:

	pdf, err := client.Await(ctx, res.ID, time.Second)

# Errors

Non-2xx responses are returned as *APIError. Use errors.Is against the
predefined values to branch on the condition:

	if errors.Is(err, reportsdk.ErrLinkExpired) {
		// issue a new link
	}
*/
package reportsdk
