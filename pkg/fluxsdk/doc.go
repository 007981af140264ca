/*
Package fluxsdk is a client for the Flux presales API.

The API is a small REST service: Google sign-in exchanges an identity token
for a session token, and every other call carries that token as a bearer
header.

	client := fluxsdk.NewClient("https://flux.example.com",
		fluxsdk.WithTokenSource(creds),
		fluxsdk.WithUnauthorizedHandler(func(ctx context.Context) {
			// the stored session is no longer valid
		}),
	)

	auth, err := client.GoogleAuth(ctx, googleIDToken)
	opps, err := client.ListOpportunities(ctx)

# Errors

Non-2xx responses are returned as *APIError carrying the server's message
("detail" or "message" in the body). Use errors.Is with ErrUnauthorized,
ErrForbidden or ErrNotFound to branch on the status:

	if errors.Is(err, fluxsdk.ErrForbidden) {
		fmt.Println(fluxsdk.UserMessage(err))
	}

A 401 from any authenticated call first invokes the unauthorized handler, so
the caller can clear its credentials in one place. Requests that never reach
the server wrap ErrTransport.
*/
package fluxsdk
