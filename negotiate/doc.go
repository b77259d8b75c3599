// SPDX-License-Identifier: Apache-2.0

/*
Package negotiate drives the token exchange that establishes a GSSAPI security context
between a client and a server, such as a Kerberos or SPNEGO handshake.

A Client or Server holds the state of one negotiation.  The caller passes each token
received from the peer to Step and sends the returned token back, until Step reports
StatusComplete or StatusError.  Tokens are carried as standard base64 text:

	c, err := negotiate.NewClient(provider, "HTTP@www.example.com", gssapi.ContextFlagMutual)
	if err != nil {
		return err
	}
	defer c.Clean()

	res := c.Step("")
	for res.Status == negotiate.StatusContinue {
		reply := sendToServer(res.Token)
		res = c.Step(reply)
	}
	if res.Status == negotiate.StatusError {
		return res.Err
	}

Neither type is safe for concurrent use.  Create one state per connection or request.
*/
package negotiate
