package synth

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var (
	surnames = []string{
		"Nguyễn", "Trần", "Lê", "Phạm", "Hoàng", "Phan", "Vũ", "Võ", "Đặng", "Bùi",
		"Đỗ", "Hồ", "Ngô", "Dương", "Lý", "Đinh", "Trương", "Mai", "Lưu", "Hà",
	}
	middleNames = []string{
		"Văn", "Thị", "Hữu", "Đức", "Minh", "Anh", "Công", "Quang", "Thanh", "Hoài",
	}
	givenNamesMale = []string{
		"Hùng", "Dũng", "Tùng", "Kiên", "Phong", "Hải", "Nam", "Long", "Tuấn", "Cường",
		"Khoa", "Thắng", "Huy", "Bình", "Thiện", "Đạt", "Hiếu", "Quân", "Tâm", "Nhân",
	}
	givenNamesFemale = []string{
		"Linh", "Hoa", "Mai", "Lan", "Thu", "Hương", "Ngọc", "Hạnh", "Thảo", "Trang",
		"Huyền", "Phương", "Yến", "Chi", "My", "Vy", "Diệp", "Xuân", "Nga", "Dung",
	}

	streets   = []string{"Nguyễn Trãi", "Lê Lợi", "Trần Hưng Đạo", "Hai Bà Trưng", "Cách Mạng Tháng 8"}
	districts = []string{"Quận 1", "Quận 3", "Quận 5", "Quận Bình Thạnh", "Quận Tân Bình"}
	cities    = []string{"TP. Hồ Chí Minh", "Hà Nội", "Đà Nẵng", "Cần Thơ"}

	phonePrefixes = []string{"09", "08", "07", "05", "03"}

	dobStart = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	dobEnd   = time.Date(2000, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Data produces synthetic Vietnamese personal data. Output is determined by the seed.
type Data struct {
	rng *rand.Rand
}

// NewData creates a data source seeded with seed.
func NewData(seed int64) *Data {
	return &Data{rng: rand.New(rand.NewSource(seed))}
}

func (d *Data) pick(list []string) string {
	return list[d.rng.Intn(len(list))]
}

func (d *Data) digits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + d.rng.Intn(10)))
	}
	return b.String()
}

// Name returns a three-part name: surname, middle name and a given name of either gender.
func (d *Data) Name() string {
	given := givenNamesMale
	if d.rng.Intn(2) == 1 {
		given = givenNamesFemale
	}
	return fmt.Sprintf("%s %s %s", d.pick(surnames), d.pick(middleNames), d.pick(given))
}

// CCCD returns a random 12-digit citizen identity number.
func (d *Data) CCCD() string {
	return d.digits(12)
}

// DOB returns a date between 1960 and 2000 formatted DD/MM/YYYY.
func (d *Data) DOB() string {
	days := int(dobEnd.Sub(dobStart).Hours() / 24)
	return dobStart.AddDate(0, 0, d.rng.Intn(days+1)).Format("02/01/2006")
}

// Phone returns a 10-digit mobile number with a common carrier prefix.
func (d *Data) Phone() string {
	return d.pick(phonePrefixes) + d.digits(8)
}

// Address returns "<number> <street>, <district>, <city>".
func (d *Data) Address() string {
	return fmt.Sprintf("%d %s, %s, %s", 1+d.rng.Intn(500), d.pick(streets), d.pick(districts), d.pick(cities))
}
