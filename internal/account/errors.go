package account

import (
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

// User-facing messages surfaced through Notifier and returned errors.
const (
	MsgSignInFailed     = "Failed to sign in"
	MsgSignUpFailed     = "Failed to create account"
	MsgSignOutFailed    = "Failed to sign out"
	MsgWishlistLoad     = "Failed to load wishlist"
	MsgWishlistSave     = "Failed to add to wishlist"
	MsgWishlistRemove   = "Failed to remove from wishlist"
	MsgWishlistMigrate  = "Some saved vehicles could not be moved to your account"
	MsgCartUpdate       = "Failed to update inquiry cart"
	MsgCartLoad         = "Failed to load inquiry cart"
	MsgInquiryFailed    = "Failed to submit inquiry"
	MsgInquiryEmpty     = "Your inquiry cart is empty"
	MsgInquirySignIn    = "Please sign in to submit an inquiry"
	MsgWishlistSaved    = "Added to wishlist"
	MsgWishlistRemoved  = "Removed from wishlist"
	MsgInquirySubmitted = "Inquiry submitted"
)

// userFacing wraps a collaborator error so the message names the failed action.
// Typed client errors keep their code and append their public message.
func userFacing(err error, action string) error {
	if err == nil {
		return nil
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	switch typed.Code() {
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency:
		return pkgerrors.Wrap(typed.Code(), err, action)
	}
	msg := action
	if m := typed.Message(); m != "" {
		msg = action + ": " + m
	}
	return pkgerrors.Wrap(typed.Code(), err, msg).WithDetails(typed.Details())
}
