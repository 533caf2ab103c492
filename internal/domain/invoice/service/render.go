package service

import (
	"fmt"
	"strings"

	"order_payment_service/internal/domain/invoice/model"
	"order_payment_service/pkg/utils"
)

const dateLayout = "2006-01-02"

// Render 纯文本发票
func Render(inv *model.Invoice) string {
	money := func(amount int64) string { return utils.FormatMinor(amount, inv.Currency) }

	var b strings.Builder
	fmt.Fprintf(&b, "INVOICE %s\n", inv.InvoiceNumber)
	if inv.Status == model.StatusVoid {
		b.WriteString("*** VOID ***\n")
	}
	b.WriteString(strings.Repeat("=", 48) + "\n")
	fmt.Fprintf(&b, "Order:   %s\n", inv.OrderNumber)
	fmt.Fprintf(&b, "Issued:  %s\n", inv.IssuedAt.Format(dateLayout))
	fmt.Fprintf(&b, "Due:     %s\n", inv.DueAt.Format(dateLayout))
	if inv.VoidedAt != nil {
		fmt.Fprintf(&b, "Voided:  %s\n", inv.VoidedAt.Format(dateLayout))
	}

	addr := inv.BillingAddress
	b.WriteString("\nBill to:\n")
	for _, line := range []string{addr.Name, addr.Line1, addr.Line2, addr.City, addr.Region, addr.PostalCode, addr.Country} {
		if line != "" {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	b.WriteString("\nItems:\n")
	for _, l := range inv.Lines {
		name := l.Name
		if name == "" {
			name = l.ProductID
		}
		fmt.Fprintf(&b, "  %d x %s @ %s = %s\n", l.Quantity, name, money(l.UnitPrice), money(l.TotalPrice))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%-10s %s\n", "Subtotal:", money(inv.Subtotal))
	fmt.Fprintf(&b, "%-10s %s\n", "Tax:", money(inv.TaxAmount))
	fmt.Fprintf(&b, "%-10s %s\n", "Shipping:", money(inv.ShippingAmount))
	if inv.DiscountAmount > 0 {
		fmt.Fprintf(&b, "%-10s -%s\n", "Discount:", money(inv.DiscountAmount))
	}
	fmt.Fprintf(&b, "%-10s %s\n", "Total:", money(inv.TotalAmount))
	return b.String()
}
