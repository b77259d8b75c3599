// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// KRB_NT_WELLKNOWN, RFC 6111
const ntWellKnown int32 = 11

// krb5Name is a Kerberos principal.  An empty realm matches any realm.
type krb5Name struct {
	pn    types.PrincipalName
	realm string
	nt    gssapi.GssNameType
}

func (p *Provider) ImportName(name string, nameType gssapi.GssNameType) (gssapi.GssName, error) {
	n, err := p.importName(name, nameType)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Provider) importName(name string, nameType gssapi.GssNameType) (*krb5Name, error) {
	switch nameType {
	case gssapi.GSS_NT_HOSTBASED_SERVICE:
		return p.importHostbased(name)
	case gssapi.GSS_KRB5_NT_PRINCIPAL_NAME, gssapi.GSS_NT_USER_NAME, gssapi.GSS_NO_OID:
		if name == "" || strings.HasPrefix(name, "@") || strings.HasSuffix(name, "@") {
			return nil, fatal(gssapi.StatusBadName, MinorBadName, nil)
		}
		pn, realm := types.ParseSPNString(name)
		if len(pn.NameString) == 1 {
			pn.NameType = nametype.KRB_NT_PRINCIPAL
		}
		return &krb5Name{pn: pn, realm: realm, nt: gssapi.GSS_KRB5_NT_PRINCIPAL_NAME}, nil
	case gssapi.GSS_C_NT_ANONYMOUS:
		return &krb5Name{
			pn:    types.NewPrincipalName(ntWellKnown, "WELLKNOWN/ANONYMOUS"),
			realm: "WELLKNOWN:ANONYMOUS",
			nt:    gssapi.GSS_C_NT_ANONYMOUS,
		}, nil
	}

	return nil, fatal(gssapi.StatusBadNameType, MinorUnsupportedNameType, nil)
}

// importHostbased converts "service@host" (or "service" for the local host) to the
// principal service/host in the realm mapped from host.
func (p *Provider) importHostbased(name string) (*krb5Name, error) {
	service, host, found := strings.Cut(name, "@")
	if service == "" || (found && host == "") {
		return nil, fatal(gssapi.StatusBadName, MinorBadName, nil)
	}

	if !found {
		h, err := os.Hostname()
		if err != nil {
			return nil, fatal(gssapi.StatusBadName, MinorBadName, err)
		}
		host = h
	}
	host = strings.ToLower(host)

	n := &krb5Name{
		pn: types.NewPrincipalName(nametype.KRB_NT_SRV_HST, service+"/"+host),
		nt: gssapi.GSS_KRB5_NT_PRINCIPAL_NAME,
	}

	// the realm is only a hint; names without one still work for the acceptor
	if cfg, err := p.krbConfig(); err == nil {
		n.realm = cfg.ResolveRealm(host)
		if n.realm == "" {
			n.realm = cfg.LibDefaults.DefaultRealm
		}
	}

	return n, nil
}

func newName(pn types.PrincipalName, realm string) *krb5Name {
	return &krb5Name{pn: pn, realm: realm, nt: gssapi.GSS_KRB5_NT_PRINCIPAL_NAME}
}

func (n *krb5Name) String() string {
	s := n.pn.PrincipalNameString()
	if n.realm != "" {
		s += "@" + n.realm
	}
	return s
}

// spn returns the principal without its realm, as used for service ticket requests.
func (n *krb5Name) spn() string {
	return n.pn.PrincipalNameString()
}

func (n *krb5Name) Compare(other gssapi.GssName) (bool, error) {
	o, ok := other.(*krb5Name)
	if !ok || o == nil {
		return false, fatal(gssapi.StatusBadNameType, MinorUnsupportedNameType, nil)
	}

	if n.realm != "" && o.realm != "" && n.realm != o.realm {
		return false, nil
	}

	if len(n.pn.NameString) != len(o.pn.NameString) {
		return false, nil
	}
	for i := range n.pn.NameString {
		if n.pn.NameString[i] != o.pn.NameString[i] {
			return false, nil
		}
	}

	return true, nil
}

func (n *krb5Name) Display() (string, gssapi.GssNameType, error) {
	return n.String(), n.nt, nil
}

func (n *krb5Name) Release() error {
	return nil
}
