package inventory

import "github.com/starford/pantry/internal/models"

// builtinDishes is the fixed catalog shipped with every install. It is never
// persisted or synced and cannot be deleted.
func builtinDishes() []models.Dish {
	return []models.Dish{
		{
			ID:          "default_1",
			Name:        "葱油焖鸡",
			Description: "1. 鸡块提前腌制\n2. 倒入鸡块翻炒\n3. 加入调料翻炒均匀出锅",
			Ingredients: []models.RequiredIngredient{
				{Name: "鸡块", Quantity: 1, Unit: "份"},
				{Name: "葱", Quantity: 1, Unit: "根"},
			},
		},
		{
			ID:          "default_2",
			Name:        "秋葵炒素肚",
			Description: "1. 秋葵切片清洗\n2. 素肚切片\n3. 热锅炒青椒\n4. 加秋葵素肚炒匀",
			Ingredients: []models.RequiredIngredient{
				{Name: "秋葵", Quantity: 1, Unit: "份"},
				{Name: "素肚", Quantity: 1, Unit: "份"},
				{Name: "青椒", Quantity: 1, Unit: "个"},
			},
		},
	}
}

func isBuiltin(dishes []models.Dish, id models.ID) bool {
	for _, d := range dishes {
		if d.ID == id {
			return true
		}
	}
	return false
}
