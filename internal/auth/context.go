package auth

import "context"

type operatorContextKey struct{}

// ContextWithOperator attaches the authenticated operator to the context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, &op)
}

// OperatorFromContext extracts the authenticated operator from the context.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	if ctx == nil {
		return Operator{}, false
	}
	v, ok := ctx.Value(operatorContextKey{}).(*Operator)
	if !ok || v == nil {
		return Operator{}, false
	}
	return *v, true
}
