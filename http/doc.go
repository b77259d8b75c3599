// SPDX-License-Identifier: Apache-2.0

/*
Package http provides Negotiate (RFC 4559) authentication for HTTP clients and servers,
built on the negotiate package.

# Clients

[NewClient] returns an [http.Client] whose transport answers Negotiate challenges:

	p, err := gssapi.NewProvider("krb5")
	...
	client := ghttp.NewClient(p, nil, ghttp.WithInitiatorMutual())
	resp, err := client.Get("https://www.example.com/")

The service name defaults to "HTTP@" followed by the host of the request URL; see
[WithInitiatorSpnFunc].

A request with a body that has to be resent after a 401 challenge needs
[http.Request.GetBody], which [http.NewRequest] sets for the common body types.
[WithInitiatorExpect100Threshold] makes large or non-rewindable requests wait for the
server's 100 Continue, so a challenge arrives before the body is sent.

With [WithInitiatorOpportunistic] the first request carries a token without waiting for
a challenge (RFC 4559 § 4.2).

# Servers

[Handler] authenticates each request and calls the next handler with an [Identity] in the
request context:

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		id, _ := ghttp.GetIdentity(r)
		fmt.Fprintf(w, "Hello, %s", id.Principal)
	})
	log.Fatal(http.ListenAndServe(":8080", ghttp.NewHandler(p, "HTTP@www.example.com", mux)))

[Middleware] adapts the handler for routers such as chi.  When chi's RequestID middleware
runs first its id is used in the log records, otherwise the handler creates one.
*/
package http
