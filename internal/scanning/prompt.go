package scanning

// receiptScanPrompt is shared by every model provider
const receiptScanPrompt = `You are reading a receipt or invoice submitted as a business travel expense. Read all text in the image and extract:

1. **merchant**: the business name, usually the largest text at the top. Examples: "Hilton", "Delta Air Lines", "Uber", "Staples".

2. **date**: the transaction or invoice date in YYYY-MM-DD format.

3. **amount**: the final total actually charged (TOTAL, Amount Due, Grand Total), as a number without currency symbols. Include tips and taxes when they are part of the total.

4. **currency**: the ISO 4217 code of the amount, for example USD, EUR, GBP, JPY or CNY. Infer it from the symbol or the country when it is not printed.

5. **category**: exactly one of "Meals", "Transportation", "Lodging", "Office Supplies", "Entertainment", "Miscellaneous".

Return ONLY valid JSON in this exact format:
{
  "merchant": "Business Name",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "currency": "USD",
  "category": "Meals"
}

Use null for any field you cannot find. Do not add text before or after the JSON and do not use markdown code blocks.`
