package core

// Category is one entry of the fixed expense taxonomy.
type Category struct {
	Name   string
	Color  string
	Advice string
}

const OtherCategory = "Diğer"

// expenseCategories is ordered; breakdown slices follow this order before sorting.
var expenseCategories = []Category{
	{Name: "Kira/Fatura", Color: "#6366f1", Advice: "Sabit giderler bütçenin belkemiği, faturaları önceden planlamak sürprizleri azaltır."},
	{Name: "Beslenme", Color: "#f97316", Advice: "Haftalık alışveriş listesi ve evde yemek bu kalemi hızla düşürebilir."},
	{Name: "Ulaşım", Color: "#0ea5e9", Advice: "Toplu taşıma kartı veya ortak yolculuk seçeneklerine göz atabilirsin."},
	{Name: "Sosyal/Keyif", Color: "#ec4899", Advice: "Keyif harcamalarına haftalık bir üst sınır koymayı deneyebilirsin."},
	{Name: "Sağlık", Color: "#10b981"},
	{Name: "Alışveriş", Color: "#eab308", Advice: "Alışverişten önce 24 saat beklemek ani harcamaları azaltır."},
	{Name: "Eğitim", Color: "#8b5cf6", Advice: "Eğitim bir yatırım, yine de ücretsiz kaynakları da değerlendirebilirsin."},
	{Name: "Abonelik", Color: "#14b8a6", Advice: "Kullanmadığın abonelikleri gözden geçirip iptal etmeyi düşünebilirsin."},
}

var otherCategory = Category{
	Name:   OtherCategory,
	Color:  "#94a3b8",
	Advice: "Küçük ve dağınık harcamaları kategorilere ayırmak resmi netleştirir.",
}

var categoryIndex = func() map[string]int {
	m := make(map[string]int, len(expenseCategories))
	for i, c := range expenseCategories {
		m[c.Name] = i
	}
	return m
}()

// ExpenseCategories returns the whitelist in display order, "Other" excluded.
func ExpenseCategories() []Category {
	out := make([]Category, len(expenseCategories))
	copy(out, expenseCategories)
	return out
}

// LookupCategory finds a whitelisted category or the Other bucket by name.
func LookupCategory(name string) (Category, bool) {
	if name == OtherCategory {
		return otherCategory, true
	}
	i, ok := categoryIndex[name]
	if !ok {
		return Category{}, false
	}
	return expenseCategories[i], true
}

func categoryColor(name string) string {
	if c, ok := LookupCategory(name); ok {
		return c.Color
	}
	return otherCategory.Color
}

func categoryAdvice(name string) string {
	if c, ok := LookupCategory(name); ok && c.Advice != "" {
		return c.Advice
	}
	return otherCategory.Advice
}
