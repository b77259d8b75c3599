// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/keytab"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// credential holds an initiator's logged-in client, an acceptor's keytab, or both.
type credential struct {
	usage gssapi.CredUsage

	cl *client.Client

	kt        *keytab.Keytab
	principal *krb5Name // nil accepts any principal in the keytab
}

func (p *Provider) AcquireCredential(name gssapi.GssName, usage gssapi.CredUsage) (gssapi.Credential, error) {
	var kname *krb5Name
	if name != nil {
		n, ok := name.(*krb5Name)
		if !ok {
			return nil, fatal(gssapi.StatusBadNameType, MinorUnsupportedNameType, nil)
		}
		kname = n
	}

	c := &credential{usage: usage}

	if usage == gssapi.CredUsageAcceptOnly || usage == gssapi.CredUsageInitiateAndAccept {
		kt, err := p.keytab()
		if err != nil {
			return nil, err
		}
		c.kt, c.principal = kt, kname
	}

	if usage == gssapi.CredUsageInitiateOnly || usage == gssapi.CredUsageInitiateAndAccept {
		user := ""
		if kname != nil {
			user = kname.spn()
		}
		cl, err := p.newClient(user)
		if err != nil {
			return nil, err
		}
		c.cl = cl
	}

	p.logger.Debug("acquired krb5 credential", "usage", usage.String(), "name", c.displayName())

	return c, nil
}

func (c *credential) canInitiate() bool {
	return c.cl != nil
}

func (c *credential) canAccept() bool {
	return c.kt != nil
}

func (c *credential) displayName() string {
	switch {
	case c.cl != nil:
		return newName(c.cl.Credentials.CName(), c.cl.Credentials.Domain()).String()
	case c.principal != nil:
		return c.principal.String()
	}
	return ""
}

func (c *credential) Release() error {
	if c.cl != nil {
		c.cl.Destroy()
		c.cl = nil
	}
	c.kt = nil
	c.principal = nil

	return nil
}

func (c *credential) Inquire() (*gssapi.CredInfo, error) {
	if c.cl == nil && c.kt == nil {
		return nil, fatal(gssapi.StatusNoCred, MinorWrongCredUsage, nil)
	}

	return &gssapi.CredInfo{
		Name:     c.displayName(),
		NameType: gssapi.GSS_KRB5_NT_PRINCIPAL_NAME,
		Usage:    c.usage,
	}, nil
}
