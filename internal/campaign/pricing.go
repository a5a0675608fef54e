package campaign

import "github.com/holiman/uint256"

// RequiredPayment returns unitPrice × quantity, rejecting on 256-bit overflow.
func RequiredPayment(quantity uint64, unitPrice *uint256.Int) (*uint256.Int, error) {
	if unitPrice == nil {
		return new(uint256.Int), nil
	}
	required, overflow := new(uint256.Int).MulOverflow(unitPrice, uint256.NewInt(quantity))
	if overflow {
		return nil, reject(KindArithmeticOverflow, "%d × %s overflows", quantity, unitPrice.Dec())
	}
	return required, nil
}

// RequireExactPayment checks that attached is exactly the price of quantity
// tokens. Underpayment and overpayment are both refused, so the treasury is
// always credited what the mint cost.
func RequireExactPayment(attached *uint256.Int, quantity uint64, unitPrice *uint256.Int) (*uint256.Int, error) {
	required, err := RequiredPayment(quantity, unitPrice)
	if err != nil {
		return nil, err
	}
	if attached == nil {
		attached = new(uint256.Int)
	}
	switch attached.Cmp(required) {
	case -1:
		return nil, reject(KindInsufficientPayment, "attached %s, required %s", attached.Dec(), required.Dec())
	case 1:
		return nil, reject(KindExcessPayment, "attached %s, required %s", attached.Dec(), required.Dec())
	}
	return required, nil
}
