package domain

// Account 帳戶 餘額以最小貨幣單位儲存，永不使用浮點數
// 帳戶由外部開戶流程建立，核心只透過 Ledger 的原子操作異動餘額
type Account struct {
	ID      int64
	Name    string
	Email   string
	Balance int64
}

func NewAccount(id int64, name, email string, balance int64) *Account {
	return &Account{
		ID:      id,
		Name:    name,
		Email:   email,
		Balance: balance,
	}
}

// Credit 入帳 (無條件)
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance + amount
	return nil
}

// Debit 扣款 只有餘額足夠才會成立，餘額不變時回傳 ErrInsufficientBalance
func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if a.Balance < amount {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance - amount
	return nil
}
