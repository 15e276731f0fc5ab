package mongo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
)

func TestDuplicateKeyClassification(t *testing.T) {
	txDup := mongodrv.CommandError{
		Code:    11000,
		Message: "E11000 duplicate key error collection: parametric.policies index: policies_settlement_tx_hash dup key",
	}
	idDup := mongodrv.WriteException{WriteErrors: mongodrv.WriteErrors{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: parametric.policies index: _id_ dup key",
	}}}

	assert.True(t, isDuplicateKey(txDup))
	assert.True(t, isSettlementTxDuplicate(txDup))

	assert.True(t, isDuplicateKey(idDup))
	assert.False(t, isSettlementTxDuplicate(idDup))

	assert.False(t, isDuplicateKey(errors.New("connection reset")))
}
