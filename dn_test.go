package apic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeDN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dn   string
		want string
	}{
		{
			name: "plain dn unchanged",
			dn:   "uni/tn-EXAMPLE/ap-APP",
			want: "uni/tn-EXAMPLE/ap-APP",
		},
		{
			name: "space escaped",
			dn:   "uni/tn-my tenant",
			want: "uni/tn-my%20tenant",
		},
		{
			name: "brackets kept",
			dn:   "uni/epp/fv-[uni/tn-T/ap-A/epg-E]",
			want: "uni/epp/fv-[uni/tn-T/ap-A/epg-E]",
		},
		{
			name: "percent escaped",
			dn:   "uni/tn-100%",
			want: "uni/tn-100%25",
		},
		{
			name: "hash and question mark escaped",
			dn:   "uni/tn-a#b?c",
			want: "uni/tn-a%23b%3Fc",
		},
		{
			name: "colon and mac address kept",
			dn:   "uni/epdefref-00:50:56:00:00:01",
			want: "uni/epdefref-00:50:56:00:00:01",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, EscapeDN(tt.dn))
		})
	}
}

// TestEscapeDNConsistency pins the property that queries and deletes embed a
// DN identically: both paths go through buildDNQuery, so for any DN the path
// is byte-for-byte the same.
func TestEscapeDNConsistency(t *testing.T) {
	t.Parallel()

	dns := []string{
		"uni/tn-my tenant/ap-my app",
		"uni/epp/fv-[uni/tn-T/ap-A/epg-E]",
		"topology/pod-1/paths-106/pathep-[eth1/11]",
		"uni/tn-100%/special#chars",
	}

	for _, dn := range dns {
		querySpec, err := buildDNQuery(dn, QuerySettings{})
		require.NoError(t, err)

		deleteSpec, err := buildDNQuery(dn, QuerySettings{})
		require.NoError(t, err)

		assert.Equal(t, querySpec.path, deleteSpec.path, "query and delete paths must agree for %q", dn)
		assert.Equal(t, "/api/mo/"+EscapeDN(dn)+".json", querySpec.path)
	}
}

func TestSplitDN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dn      string
		want    []string
		wantErr bool
	}{
		{
			name: "flat dn",
			dn:   "uni/fabric/leportp-MyLPSelectorProf",
			want: []string{"uni", "fabric", "leportp-MyLPSelectorProf"},
		},
		{
			name: "initial slash yields empty rdn",
			dn:   "/uni/fabric",
			want: []string{"", "uni", "fabric"},
		},
		{
			name: "trailing slash yields empty rdn",
			dn:   "uni/fabric/",
			want: []string{"uni", "fabric", ""},
		},
		{
			name: "bracketed rdn keeps inner slashes",
			dn:   "uni/fabric/nodecfgcont/node-1001/rsnodeGroup-[uni/fabric/maintgrp-MG]/fault-F1300",
			want: []string{"uni", "fabric", "nodecfgcont", "node-1001", "rsnodeGroup-[uni/fabric/maintgrp-MG]", "fault-F1300"},
		},
		{
			name: "nested brackets",
			dn:   "uni/epp/fv-[uni/tn-T/ap-A]/dyatt-[topology/pod-1/pathep-[eth1/11]]/conndef",
			want: []string{"uni", "epp", "fv-[uni/tn-T/ap-A]", "dyatt-[topology/pod-1/pathep-[eth1/11]]", "conndef"},
		},
		{
			name: "single rdn",
			dn:   "uni",
			want: []string{"uni"},
		},
		{
			name:    "overclosed bracket",
			dn:      "uni/fabric/grp-[a]]/x",
			wantErr: true,
		},
		{
			name:    "unclosed bracket",
			dn:      "uni/fabric/grp-[a/x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := SplitDN(tt.dn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
