package dynamo

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docmap/store"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// KeyFor returns the primary key of the record with the given identity.
// Every docmap table uses a string hash key named after store.IDField.
func KeyFor(id string) PK {
	return PK{
		store.IDField: &types.AttributeValueMemberS{Value: id},
	}
}

// IdentityOf extracts the identity from a raw DynamoDB item.
func IdentityOf(item map[string]types.AttributeValue) string {
	if v, ok := item[store.IDField].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
