package service

import "github.com/amirk1998/stocktalk/pkg/errors"

// CheckOwnership allows the action only when the resource belongs to the caller
func CheckOwnership(resourceOwnerID, authenticatedUserID int) error {
	if resourceOwnerID != authenticatedUserID {
		return errors.ErrForbidden
	}
	return nil
}
