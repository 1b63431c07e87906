package document

import "fmt"

// Schema identifies a prebuilt extraction model on the document service.
type Schema string

const (
	SchemaInvoice  Schema = "prebuilt-invoice"
	SchemaReceipt  Schema = "prebuilt-receipt"
	SchemaIdentity Schema = "prebuilt-idDocument"
)

// SchemaFor maps a resolved document intent to its extraction schema.
// General documents have no structured schema; they go through the plain
// text + summarization path instead.
func SchemaFor(intent Intent) (Schema, error) {
	switch intent {
	case IntentInvoice:
		return SchemaInvoice, nil
	case IntentReceipt:
		return SchemaReceipt, nil
	case IntentIdentity:
		return SchemaIdentity, nil
	}
	return "", fmt.Errorf("no extraction schema for document intent %q", intent)
}

// fieldSpec lists the top-level and line-item fields surfaced per schema.
// Anything outside the whitelist is dropped at flatten time.
type fieldSpec struct {
	fields []string
	items  []string
}

var schemaFields = map[Schema]fieldSpec{
	SchemaInvoice: {
		fields: []string{
			"VendorName", "VendorAddress", "VendorAddressRecipient",
			"CustomerName", "CustomerId", "CustomerAddress", "CustomerAddressRecipient",
			"InvoiceId", "InvoiceDate", "InvoiceTotal", "DueDate", "PurchaseOrder",
			"BillingAddress", "BillingAddressRecipient",
			"ShippingAddress", "ShippingAddressRecipient",
			"SubTotal", "TotalTax", "PreviousUnpaidBalance", "AmountDue",
			"ServiceStartDate", "ServiceEndDate", "ServiceAddress", "ServiceAddressRecipient",
			"RemittanceAddress", "RemittanceAddressRecipient",
		},
		items: []string{
			"Description", "Quantity", "Unit", "UnitPrice",
			"ProductCode", "Date", "Tax", "Amount",
		},
	},
	SchemaReceipt: {
		fields: []string{
			"MerchantName", "TransactionDate", "Subtotal", "TotalTax", "Tip", "Total",
		},
		items: []string{
			"Description", "Quantity", "Price", "TotalPrice",
		},
	},
	SchemaIdentity: {
		fields: []string{
			"FirstName", "LastName", "DateOfBirth", "DocumentNumber",
			"DateOfExpiration", "Address", "Sex", "CountryRegion", "Region",
		},
	},
}
