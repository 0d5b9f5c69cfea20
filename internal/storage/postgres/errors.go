package postgres

import (
	stderrors "errors"

	"github.com/lib/pq"
)

const uniqueProposalConstraint = "proposals_task_proposer_key"

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

func pqCode(err error) (pq.ErrorCode, *pq.Error) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code, pqErr
	}
	return "", nil
}

func isUniqueViolation(err error, constraint string) bool {
	code, pqErr := pqCode(err)
	if code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == "" || pqErr.Constraint == constraint
}

func isForeignKeyViolation(err error) bool {
	code, _ := pqCode(err)
	return code == codeForeignKeyViolation
}

func isInvalidText(err error) bool {
	code, _ := pqCode(err)
	return code == codeInvalidText
}
