package receipt

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"pdv/backend/internal/domain"
)

const DateLayout = "02/01/2006 15:04:05"

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaymentCash:       "Dinheiro",
	domain.PaymentDebitCard:  "Cartao de Debito",
	domain.PaymentCreditCard: "Cartao de Credito",
	domain.PaymentPix:        "PIX",
}

// Build turns a committed sale into its receipt payload. Discounts shown per
// line and in the total combine the manual and bulk discounts.
func Build(sale domain.Sale) domain.Receipt {
	lines := make([]domain.ReceiptLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, domain.ReceiptLine{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			Weight:    item.Weight,
			UnitPrice: item.UnitPrice,
			Total:     item.NetTotal,
			Discount:  item.Discount.Add(item.BulkDiscount),
		})
	}

	return domain.Receipt{
		SaleID:         sale.ID,
		Date:           sale.CreatedAt.Format(DateLayout),
		Operator:       sale.OperatorID,
		Items:          lines,
		Subtotal:       sale.Subtotal,
		TotalDiscount:  sale.Discount.Add(sale.BulkDiscount),
		FinalTotal:     sale.FinalAmount,
		PaymentMethod:  sale.PaymentMethod,
		AmountReceived: sale.AmountReceived,
		Change:         sale.AmountReceived.Sub(sale.FinalAmount),
	}
}

// Text renders a printable receipt with pt-BR number formatting.
func Text(r domain.Receipt) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	money := func(v decimal.Decimal) string {
		return p.Sprintf("R$ %.2f", v.InexactFloat64())
	}

	lines := []string{
		"PDV",
		"========================",
		"Venda: " + r.SaleID,
		"Data: " + r.Date,
		"Operador: " + r.Operator,
		"------------------------",
	}
	for _, item := range r.Items {
		if item.Weight.Valid {
			lines = append(lines, p.Sprintf("%s %.3f kg x %s", item.Name, item.Weight.Decimal.InexactFloat64(), money(item.UnitPrice)))
		} else {
			lines = append(lines, p.Sprintf("%s %s x %s", item.Name, item.Quantity.String(), money(item.UnitPrice)))
		}
		if item.Discount.IsPositive() {
			lines = append(lines, "  Desconto: -"+money(item.Discount))
		}
		lines = append(lines, "  "+money(item.Total))
	}

	method := paymentLabels[r.PaymentMethod]
	if method == "" {
		method = string(r.PaymentMethod)
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+money(r.Subtotal),
		"Desconto : "+money(r.TotalDiscount),
		"Total    : "+money(r.FinalTotal),
		"Pagamento: "+method,
		"Recebido : "+money(r.AmountReceived),
		"Troco    : "+money(r.Change),
		"========================",
		"Obrigado pela preferencia",
		"",
	)
	return strings.Join(lines, "\n")
}
