package contract

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Methods callable through Handle. State changing methods go through
// Host.Call, get_* methods through Host.View.
const (
	MethodInit            = "init"
	MethodGetParams       = "get_params"
	MethodGetCardMapping  = "get_card_mapping"
	MethodCreateTable     = "create_table"
	MethodJoinTable       = "join_table"
	MethodStartTable      = "start_table"
	MethodGetAggregateKey = "get_aggregate_key"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("contract: building canonical encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("contract: building decoder: %v", err))
	}
}

// CreateTableArgs are the arguments of create_table. The proof must bind
// the caller's account id.
type CreateTableArgs struct {
	_      struct{} `cbor:",toarray"`
	PubKey []byte
	Proof  []byte
}

// JoinTableArgs are the arguments of join_table.
type JoinTableArgs struct {
	_       struct{} `cbor:",toarray"`
	TableID []byte
	PubKey  []byte
	Proof   []byte
}

// StartTableArgs are the arguments of start_table.
type StartTableArgs struct {
	_       struct{} `cbor:",toarray"`
	TableID []byte
}

// GetAggregateKeyArgs are the arguments of get_aggregate_key.
type GetAggregateKeyArgs struct {
	_       struct{} `cbor:",toarray"`
	TableID []byte
}

// EncodeArgs serializes a method's argument struct for a host call.
func EncodeArgs(args any) ([]byte, error) {
	data, err := encMode.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("error encoding arguments: %v", err)
	}
	return data, nil
}

func decodeArgs(data []byte, into any) error {
	if err := decMode.Unmarshal(data, into); err != nil {
		return ErrInvalidRequest.Wrapf("decoding arguments: %v", err)
	}
	return nil
}
