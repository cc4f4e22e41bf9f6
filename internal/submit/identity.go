package submit

import (
	"context"
	"strings"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// Identities fetches the account's sending identities.
func Identities(ctx context.Context, client *jmap.Client, accountId protocol.Id) ([]protocol.Identity, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodIdentityGet, "i0", protocol.GetRequest{AccountId: accountId}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodIdentityGet, "i0")
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseIdentityGetResponse(mr)
	if err != nil {
		return nil, err
	}
	return parsed.List, nil
}

// ResolveIdentity picks the sending identity for arg: exact id first,
// then case-insensitive email match. An empty arg falls back to the
// first identity the server lists.
func ResolveIdentity(identities []protocol.Identity, arg string) (*protocol.Identity, error) {
	if len(identities) == 0 {
		return nil, envelope.Configf("account has no sending identities")
	}
	if arg == "" {
		return &identities[0], nil
	}
	for i := range identities {
		if identities[i].Id == protocol.Id(arg) {
			return &identities[i], nil
		}
	}
	for i := range identities {
		if strings.EqualFold(identities[i].Email, arg) {
			return &identities[i], nil
		}
	}
	return nil, envelope.Usagef("unknown identity %q", arg)
}
